package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ccielab/enrollment-service/internal/entity"
	"github.com/ccielab/enrollment-service/internal/usecase"
)

// deal-to-contact association type id in HubSpot's default schema
const dealToContactAssociation = 3

type Client struct {
	baseURL  string
	apiToken string
	http     *http.Client
}

func NewClient(apiToken, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.hubapi.com"
	}
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// FindOrCreate looks the contact up by exact email, creating it with
// lead_status NEW when missing. The lookup and the create are two separate
// remote calls: a concurrent enrollment can slip between them and produce
// a duplicate contact. Accepted data-quality cost, not a crash.
func (c *Client) FindOrCreate(ctx context.Context, email string, fields entity.ProfileFields) (entity.ContactRef, error) {
	existing, err := c.findByEmail(ctx, email)
	if err != nil {
		return entity.ContactRef{}, err
	}

	if existing != nil {
		// Fill only the gaps. Staff edits in the CRM always win over the
		// intake form.
		patch := contactProperties{}
		dirty := false
		if existing.Properties.FullName == "" && fields.Name != "" {
			patch.FullName = fields.Name
			dirty = true
		}
		if existing.Properties.Phone == "" && fields.Phone != "" {
			patch.Phone = fields.Phone
			dirty = true
		}
		if existing.Properties.Course == "" && fields.Course != "" {
			patch.Course = fields.Course
			dirty = true
		}
		if dirty {
			if err := c.patchContact(ctx, existing.ID, patch); err != nil {
				log.Printf("⚠️ HubSpot: profile backfill for %s failed: %v", existing.ID, err)
			}
		}
		return entity.ContactRef{ID: existing.ID, Email: email}, nil
	}

	created, err := c.createContact(ctx, contactProperties{
		Email:      email,
		FullName:   fields.Name,
		Phone:      fields.Phone,
		Course:     fields.Course,
		LeadStatus: entity.LeadStatusNew,
	})
	if err != nil {
		return entity.ContactRef{}, err
	}

	log.Printf("✅ HubSpot: contact %s created for %s", created.ID, email)
	return entity.ContactRef{ID: created.ID, Email: email}, nil
}

// RecordEnrollment is the post-payment CRM mutation: lead flips to
// ENROLLED with the paid amount and transaction id, and a deal is created
// against the contact. Callers guard it with the idempotency ledger, so it
// runs at most once per transaction.
func (c *Client) RecordEnrollment(ctx context.Context, contactID string, enr usecase.CRMEnrollment) error {
	patch := contactProperties{
		LeadStatus:    entity.LeadStatusEnrolled,
		PaymentStatus: "PAID",
		Course:        enr.CourseID,
		PaidAmount:    fmt.Sprintf("%d", enr.AmountCents),
		PaymentID:     enr.TransactionID,
	}
	if err := c.patchContact(ctx, contactID, patch); err != nil {
		return err
	}

	deal := dealRequest{
		Properties: dealProperties{
			DealName:  fmt.Sprintf("%s - %s (%s)", enr.Email, enr.CourseID, enr.Plan),
			Amount:    entity.FormatAmount(enr.AmountCents),
			DealStage: "closedwon",
			PaymentID: enr.TransactionID,
		},
		Associations: []dealAssociation{
			{
				To: associationTarget{ID: contactID},
				Types: []associationType{
					{AssociationCategory: "HUBSPOT_DEFINED", AssociationTypeID: dealToContactAssociation},
				},
			},
		},
	}
	dealID, err := c.createDeal(ctx, deal)
	if err != nil {
		return err
	}

	log.Printf("✅ HubSpot: deal %s created for contact %s (txn %s)", dealID, contactID, enr.TransactionID)
	return nil
}

func (c *Client) findByEmail(ctx context.Context, email string) (*contactResponse, error) {
	payload := searchRequest{
		FilterGroups: []filterGroup{
			{Filters: []filter{{PropertyName: "email", Operator: "EQ", Value: email}}},
		},
		Properties: []string{"email", "full_name", "phone", "course", "lead_status"},
		Limit:      1,
	}

	var result searchResponse
	if err := c.do(ctx, "POST", "/crm/v3/objects/contacts/search", payload, &result); err != nil {
		return nil, err
	}

	if len(result.Results) == 0 {
		return nil, nil
	}
	return &result.Results[0], nil
}

func (c *Client) createContact(ctx context.Context, props contactProperties) (*contactResponse, error) {
	var result contactResponse
	err := c.do(ctx, "POST", "/crm/v3/objects/contacts", contactRequest{Properties: props}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) patchContact(ctx context.Context, id string, props contactProperties) error {
	return c.do(ctx, "PATCH", "/crm/v3/objects/contacts/"+id, contactRequest{Properties: props}, nil)
}

func (c *Client) createDeal(ctx context.Context, deal dealRequest) (string, error) {
	var result dealResponse
	if err := c.do(ctx, "POST", "/crm/v3/objects/deals", deal, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal hubspot payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", usecase.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: hubspot status %d", usecase.ErrUpstreamUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("hubspot rejected %s %s (status %d): %s", method, path, resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode hubspot response: %w", err)
	}
	return nil
}
