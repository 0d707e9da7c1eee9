package mail

import (
	"bytes"
	"fmt"
	"html/template"
	netmail "net/mail"

	"gopkg.in/gomail.v2"

	"github.com/ccielab/enrollment-service/internal/usecase"
)

var customerTemplate = template.Must(template.New("customer").Parse(`
<h2>Welcome aboard, {{.Name}}!</h2>
<p>Your enrollment in <strong>{{.Course}}</strong> ({{.Plan}}) is confirmed.</p>
<p>Amount paid: <strong>${{.Amount}}</strong><br>
Payment reference: {{.TxnID}}</p>
<p>You will receive your course access details shortly.</p>
`))

var staffTemplate = template.Must(template.New("staff").Parse(`
<h3>New enrollment</h3>
<ul>
<li>Student: {{.Name}} &lt;{{.Email}}&gt;</li>
<li>Course: {{.Course}} ({{.Plan}})</li>
<li>Paid: ${{.Amount}}</li>
<li>Txn: {{.TxnID}}</li>
</ul>
`))

func NewSender(host string, port int, user, password, from string) *Sender {
	return &Sender{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		From:     from,
	}
}

// Notify renders and sends one notification kind. Errors are split into
// usecase.ErrPermanentSend (bad address, unknown kind: retrying cannot
// help) and usecase.ErrTransientSend (SMTP trouble: the sweep retries).
// Sending never touches payment or CRM state.
func (s *Sender) Notify(kind, recipient string, params usecase.NotificationParams) error {
	if _, err := netmail.ParseAddress(recipient); err != nil {
		return fmt.Errorf("%w: bad recipient %q: %v", usecase.ErrPermanentSend, recipient, err)
	}

	data := enrollmentEmailData{
		Name:   params.Name,
		Course: params.Course,
		Plan:   params.Plan,
		Amount: params.Amount,
		Email:  params.Email,
		TxnID:  params.TxnID,
	}

	var tmpl *template.Template
	var subject string
	switch kind {
	case usecase.NotifyCustomerConfirmation:
		tmpl = customerTemplate
		subject = fmt.Sprintf("You're enrolled in %s, %s! 🚀", params.Course, params.Name)
	case usecase.NotifyStaffEnrollment:
		tmpl = staffTemplate
		subject = fmt.Sprintf("New enrollment: %s (%s)", params.Email, params.Course)
	default:
		return fmt.Errorf("%w: unknown notification kind %q", usecase.ErrPermanentSend, kind)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("%w: template render: %v", usecase.ErrPermanentSend, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body.String())

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("%w: smtp send: %v", usecase.ErrTransientSend, err)
	}

	return nil
}
