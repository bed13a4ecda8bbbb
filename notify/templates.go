package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

var templates = template.Must(template.New("mail").Parse(`
{{define "report-code"}}<h1>Verify your report</h1>
<p>Hello {{.Name}},</p>
<p>Your verification code to submit a report on Spot &amp; Sort is:</p>
<h2>{{.Code}}</h2>
<p>This code will expire in {{.Minutes}} minutes.</p>{{end}}

{{define "signup-code"}}<h1>Welcome to Spot &amp; Sort!</h1>
<p>Your verification code is:</p>
<h2>{{.Code}}</h2>
<p>This code will expire in {{.Minutes}} minutes.</p>{{end}}

{{define "ticket"}}<h1>Report submitted</h1>
<p>Hello {{.Name}},</p>
<p>Your report has been successfully submitted and verified.</p>
<p>Your ticket ID is: <strong>{{.TicketID}}</strong></p>
<p>You can use this ID to track the status of your report on our website.</p>{{end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s mail: %w", name, err)
	}
	return buf.String(), nil
}

func ReportCode(to, name, code string, minutes int) (Message, error) {
	body, err := render("report-code", map[string]any{"Name": name, "Code": code, "Minutes": minutes})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Your Spot & Sort Report Verification Code", HTMLBody: body}, nil
}

func SignupCode(to, code string, minutes int) (Message, error) {
	body, err := render("signup-code", map[string]any{"Code": code, "Minutes": minutes})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Spot & Sort Email Verification", HTMLBody: body}, nil
}

func TicketConfirmation(to, name, ticketID string) (Message, error) {
	body, err := render("ticket", map[string]any{"Name": name, "TicketID": ticketID})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Your Spot & Sort Ticket ID: " + ticketID, HTMLBody: body}, nil
}
