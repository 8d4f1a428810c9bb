package model

import "time"

// EmailMessage is one mailbox message after detail expansion.
type EmailMessage struct {
	ID      int64     `json:"id"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
	HTML    []string  `json:"html,omitempty"`
	Text    string    `json:"text,omitempty"`
}

// EmailFilter narrows a mailbox search. Subject is applied server-side,
// the rest client-side after detail fetch.
type EmailFilter struct {
	Subject     string
	FromAddress string
	DateFrom    *time.Time
	DateTo      *time.Time
}
