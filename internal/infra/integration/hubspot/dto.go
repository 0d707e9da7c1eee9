package hubspot

// Contact property names on the HubSpot side. lead_status and the payment
// fields are custom properties provisioned on the portal.
type contactProperties struct {
	Email         string `json:"email,omitempty"`
	FullName      string `json:"full_name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Course        string `json:"course,omitempty"`
	LeadStatus    string `json:"lead_status,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
	PaidAmount    string `json:"paid_amount,omitempty"`
	PaymentID     string `json:"payment_id,omitempty"`
}

type contactRequest struct {
	Properties contactProperties `json:"properties"`
}

type contactResponse struct {
	ID         string            `json:"id"`
	Properties contactProperties `json:"properties"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties"`
	Limit        int           `json:"limit"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type searchResponse struct {
	Total   int               `json:"total"`
	Results []contactResponse `json:"results"`
}

type dealRequest struct {
	Properties   dealProperties    `json:"properties"`
	Associations []dealAssociation `json:"associations"`
}

type dealProperties struct {
	DealName  string `json:"dealname"`
	Amount    string `json:"amount"`
	DealStage string `json:"dealstage"`
	PaymentID string `json:"payment_id,omitempty"`
}

type dealAssociation struct {
	To    associationTarget `json:"to"`
	Types []associationType `json:"types"`
}

type associationTarget struct {
	ID string `json:"id"`
}

type associationType struct {
	AssociationCategory string `json:"associationCategory"`
	AssociationTypeID   int    `json:"associationTypeId"`
}

type dealResponse struct {
	ID string `json:"id"`
}
