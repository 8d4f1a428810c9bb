package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ethermail_farm/internal/model"
)

type Mailbox struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type mailboxesResp struct {
	Results []Mailbox `json:"results"`
}

// Mailboxes lists the account's mailboxes.
func (c *Client) Mailboxes(ctx context.Context) ([]Mailbox, error) {
	var resp mailboxesResp
	if err := c.doJSON(ctx, http.MethodGet, "mailboxes", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

type searchReq struct {
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Page     int     `json:"page"`
	Limit    int     `json:"limit"`
	Mailbox  string  `json:"mailbox"`
	Query    string  `json:"query"`
}

type MessageSummary struct {
	ID   int64 `json:"id"`
	From struct {
		Address string `json:"address"`
	} `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
}

type searchResp struct {
	Results []MessageSummary `json:"results"`
}

// SearchMessages runs a server-side query within one mailbox.
func (c *Client) SearchMessages(ctx context.Context, mailboxID string, page, limit int, query string) ([]MessageSummary, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	var resp searchResp
	err := c.doJSON(ctx, http.MethodPost, "messages/search", searchReq{
		Page:    page,
		Limit:   limit,
		Mailbox: mailboxID,
		Query:   query,
	}, nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

type MessageDetail struct {
	ID   int64 `json:"id"`
	From struct {
		Address string `json:"address"`
	} `json:"from"`
	Subject string   `json:"subject"`
	Date    string   `json:"date"`
	HTML    []string `json:"html"`
	Text    string   `json:"text"`
}

// MessageDetails fetches the full content of one message.
func (c *Client) MessageDetails(ctx context.Context, mailboxID string, messageID int64) (MessageDetail, error) {
	var resp MessageDetail
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("mailboxes/%s/messages/%d", mailboxID, messageID), nil, nil, &resp)
	if err != nil {
		return MessageDetail{}, err
	}
	return resp, nil
}

// SearchEmails finds INBOX messages matching the filter. The subject is
// queried server-side; sender and date range are filtered here after the
// summary fetch, then each hit is expanded to full details.
func (c *Client) SearchEmails(ctx context.Context, filter model.EmailFilter) ([]model.EmailMessage, error) {
	mailboxes, err := c.Mailboxes(ctx)
	if err != nil {
		return nil, err
	}
	var inbox *Mailbox
	for i := range mailboxes {
		if mailboxes[i].Name == "INBOX" {
			inbox = &mailboxes[i]
			break
		}
	}
	if inbox == nil {
		return nil, errors.New("inbox not found")
	}

	summaries, err := c.SearchMessages(ctx, inbox.ID, 1, 10, filter.Subject)
	if err != nil {
		return nil, err
	}

	var out []model.EmailMessage
	for _, msg := range summaries {
		if filter.FromAddress != "" && msg.From.Address != filter.FromAddress {
			continue
		}
		date, err := time.Parse(time.RFC3339, msg.Date)
		if err != nil {
			return nil, fmt.Errorf("parse message date %q: %w", msg.Date, err)
		}
		if filter.DateFrom != nil && date.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && date.After(*filter.DateTo) {
			continue
		}

		detail, err := c.MessageDetails(ctx, inbox.ID, msg.ID)
		if err != nil {
			return nil, err
		}
		detailDate, err := time.Parse(time.RFC3339, detail.Date)
		if err != nil {
			detailDate = date
		}
		out = append(out, model.EmailMessage{
			ID:      detail.ID,
			From:    detail.From.Address,
			Subject: detail.Subject,
			Date:    detailDate,
			HTML:    detail.HTML,
			Text:    detail.Text,
		})
	}
	return out, nil
}
