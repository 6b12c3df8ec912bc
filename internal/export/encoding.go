package export

import (
	"encoding/csv"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"gramwatch/internal/domain"
)

// Record is the flat projection written by the rolling file sink.
type Record struct {
	Kind      string    `json:"kind"`
	RuleID    string    `json:"rule_id,omitempty"`
	Source    string    `json:"source"`
	GroupID   int64     `json:"group_id,omitempty"`
	MessageID int64     `json:"message_id,omitempty"`
	Date      time.Time `json:"date"`
	Sender    string    `json:"sender,omitempty"`
	Text      string    `json:"text,omitempty"`
	Note      string    `json:"note,omitempty"`
}

func recordFrom(p *domain.SinkPayload) Record {
	r := Record{
		Kind:   p.Kind.String(),
		RuleID: p.RuleID,
		Source: p.Source,
		Date:   p.At,
		Note:   p.Note,
	}
	if p.Message != nil {
		r.GroupID = p.Message.GroupID
		r.MessageID = p.Message.ID
		r.Text = p.Message.RawText
		if r.Date.IsZero() {
			r.Date = p.Message.Date
		}
	}
	if p.Group != nil && r.GroupID == 0 {
		r.GroupID = p.Group.ID
	}
	if p.Sender != nil {
		r.Sender = p.Sender.DisplayName()
	}
	return r
}

// Encoder serializes one flushed batch of records.
type Encoder interface {
	Ext() string
	Encode(w io.Writer, records []Record) error
}

// NewEncoder maps a configured encoding name to its implementation.
func NewEncoder(name string) (Encoder, error) {
	switch name {
	case "csv":
		return csvEncoder{}, nil
	case "html":
		return htmlEncoder{}, nil
	case "json":
		return jsonEncoder{}, nil
	case "gob":
		return gobEncoder{}, nil
	}
	return nil, fmt.Errorf("unknown encoding %q", name)
}

type csvEncoder struct{}

func (csvEncoder) Ext() string { return ".csv" }

func (csvEncoder) Encode(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"kind", "rule_id", "source", "group_id", "message_id", "date", "sender", "text", "note"}); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Kind, r.RuleID, r.Source,
			strconv.FormatInt(r.GroupID, 10),
			strconv.FormatInt(r.MessageID, 10),
			r.Date.Format(time.RFC3339),
			r.Sender, r.Text, r.Note,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonEncoder struct{}

func (jsonEncoder) Ext() string { return ".json" }

// Encode writes one JSON object per line for stream-friendly consumers.
func (jsonEncoder) Encode(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

type gobEncoder struct{}

func (gobEncoder) Ext() string { return ".gob" }

func (gobEncoder) Encode(w io.Writer, records []Record) error {
	return gob.NewEncoder(w).Encode(records)
}

type htmlEncoder struct{}

func (htmlEncoder) Ext() string { return ".html" }

var batchTemplate = template.Must(template.New("batch").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>matches</title></head>
<body><table border="1">
<tr><th>kind</th><th>rule</th><th>source</th><th>group</th><th>message</th><th>date</th><th>sender</th><th>text</th><th>note</th></tr>
{{range .}}<tr><td>{{.Kind}}</td><td>{{.RuleID}}</td><td>{{.Source}}</td><td>{{.GroupID}}</td><td>{{.MessageID}}</td><td>{{.Date.Format "2006-01-02 15:04:05"}}</td><td>{{.Sender}}</td><td>{{.Text}}</td><td>{{.Note}}</td></tr>
{{end}}</table></body></html>
`))

func (htmlEncoder) Encode(w io.Writer, records []Record) error {
	return batchTemplate.Execute(w, records)
}
