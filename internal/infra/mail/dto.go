package mail

type Sender struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type enrollmentEmailData struct {
	Name   string
	Course string
	Plan   string
	Amount string
	Email  string
	TxnID  string
}
