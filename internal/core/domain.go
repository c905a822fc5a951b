package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TxType = "income"
	Expense TxType = "expense"

	// MaxAttachmentsPerKind caps images and documents independently.
	MaxAttachmentsPerKind = 5

	// MaxContentLength bounds the free-text description.
	MaxContentLength = 200
)

type (
	// TxType distinguishes income from expense transactions.
	TxType string

	// Money is a whole-yen amount. The app never deals in fractional
	// currency, so sums stay exact integers.
	Money int64

	// Date is a calendar date in YYYY-MM-DD form. The fixed-width,
	// zero-padded format makes lexicographic comparison equivalent to
	// chronological comparison.
	Date string

	// AttachmentKind tells which store holds an attachment's bytes.
	AttachmentKind string

	// Attachment is a weak reference into exactly one of the two
	// attachment stores: a local id or a remote URL, never both.
	Attachment struct {
		Kind AttachmentKind `json:"kind"`
		ID   string         `json:"id,omitempty"`
		URL  string         `json:"url,omitempty"`
	}

	// Transaction is a single income or expense record.
	Transaction struct {
		ID        string       `json:"id"`
		Type      TxType       `json:"type"`
		Amount    Money        `json:"amount"`
		Category  string       `json:"category"`
		Content   string       `json:"content,omitempty"`
		Date      Date         `json:"date"`
		Images    []Attachment `json:"images,omitempty"`
		Documents []Attachment `json:"documents,omitempty"`
		CreatedAt time.Time    `json:"createdAt"`
		UpdatedAt time.Time    `json:"updatedAt"`
	}

	// FileUpload is a file handed to the save path: raw bytes plus the
	// declared name and MIME type.
	FileUpload struct {
		Name        string
		ContentType string
		Data        []byte
	}
)

const (
	AttachmentLocal  AttachmentKind = "local"
	AttachmentRemote AttachmentKind = "remote"
)

var (
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidDate     = errors.New("invalid date")
	ErrContentTooLong  = errors.New("content too long")
	ErrTooManyFiles    = errors.New("too many attachments")
	ErrEmptyFile       = errors.New("empty file")
)

// NewDate builds a Date from its components. The inputs are normalized by
// time.Date, so NewDate(2024, 13, 1) becomes 2025-01-01.
func NewDate(year, month, day int) Date {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return Date(t.Format("2006-01-02"))
}

// Today returns the current date in UTC.
func Today() Date {
	return Date(time.Now().UTC().Format("2006-01-02"))
}

func (d Date) Validate() error {
	t, err := time.Parse("2006-01-02", string(d))
	if err != nil {
		return ErrInvalidDate
	}
	// Reject inputs time.Parse silently normalized, e.g. 2024-02-30.
	if t.Format("2006-01-02") != string(d) {
		return ErrInvalidDate
	}
	return nil
}

// Year returns the year component, or 0 for a malformed date.
func (d Date) Year() int {
	t, err := time.Parse("2006-01-02", string(d))
	if err != nil {
		return 0
	}
	return t.Year()
}

// Month returns the month component (1-12), or 0 for a malformed date.
func (d Date) Month() int {
	t, err := time.Parse("2006-01-02", string(d))
	if err != nil {
		return 0
	}
	return int(t.Month())
}

// Day returns the day of month, or 0 for a malformed date.
func (d Date) Day() int {
	t, err := time.Parse("2006-01-02", string(d))
	if err != nil {
		return 0
	}
	return t.Day()
}

// MonthRange returns the inclusive [first, last] date bounds of a month.
// Comparing dates against the bounds as plain strings is chronologically
// correct because the format is fixed-width.
func MonthRange(year, month int) (Date, Date) {
	first := NewDate(year, month, 1)
	last := NewDate(year, month, DaysInMonth(year, month))
	return first, last
}

// DaysInMonth returns the number of calendar days in the given month.
func DaysInMonth(year, month int) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (ty TxType) Validate() error {
	switch ty {
	case Income, Expense:
		return nil
	}
	return ErrInvalidType
}

func (m Money) Validate() error {
	if m < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// IsLocal reports whether the attachment bytes live in the local store.
func (a Attachment) IsLocal() bool { return a.Kind == AttachmentLocal }

func (a Attachment) Validate() error {
	switch a.Kind {
	case AttachmentLocal:
		if a.ID == "" || a.URL != "" {
			return fmt.Errorf("local attachment must carry an id only")
		}
	case AttachmentRemote:
		if a.URL == "" || a.ID != "" {
			return fmt.Errorf("remote attachment must carry a url only")
		}
	default:
		return fmt.Errorf("unknown attachment kind %q", a.Kind)
	}
	return nil
}

// LocalIDs extracts the local-store ids from an attachment list, in order.
func LocalIDs(atts []Attachment) []string {
	var ids []string
	for _, a := range atts {
		if a.Kind == AttachmentLocal {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// RemoteURLs extracts the remote URLs from an attachment list, in order.
func RemoteURLs(atts []Attachment) []string {
	var urls []string
	for _, a := range atts {
		if a.Kind == AttachmentRemote {
			urls = append(urls, a.URL)
		}
	}
	return urls
}

func (t Transaction) Validate() error {
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !ValidCategory(t.Type, t.Category) {
		return ErrInvalidCategory
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if utf8.RuneCountInString(t.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	if len(t.Images) > MaxAttachmentsPerKind || len(t.Documents) > MaxAttachmentsPerKind {
		return ErrTooManyFiles
	}
	for _, a := range t.Images {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	for _, a := range t.Documents {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (f FileUpload) Validate() error {
	if len(f.Data) == 0 {
		return ErrEmptyFile
	}
	if strings.TrimSpace(f.Name) == "" {
		return errors.New("file name is required")
	}
	return nil
}
