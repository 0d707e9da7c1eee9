package paypal

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type createOrderRequest struct {
	Intent        string         `json:"intent"` // CAPTURE
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type purchaseUnit struct {
	Description string      `json:"description,omitempty"`
	Amount      orderAmount `json:"amount"`
	Payments    *payments   `json:"payments,omitempty"`
}

type orderAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"` // decimal string, e.g. "19.99"
}

type orderResponse struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"` // CREATED, APPROVED, COMPLETED
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	Links         []link         `json:"links"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"` // approve, self, capture
}

type payments struct {
	Captures []capture `json:"captures"`
}

type capture struct {
	ID     string      `json:"id"`
	Status string      `json:"status"` // COMPLETED, DECLINED
	Amount orderAmount `json:"amount"`
}

type apiErrorResponse struct {
	Name    string      `json:"name"`
	Message string      `json:"message"`
	Details []errDetail `json:"details"`
}

type errDetail struct {
	Issue       string `json:"issue"`
	Description string `json:"description"`
}
