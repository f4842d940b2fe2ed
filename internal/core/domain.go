package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Activity log actions
const (
	ActionLogin              = "LOGIN"
	ActionCreateBill         = "CREATE_BILL"
	ActionUpdateBill         = "UPDATE_BILL"
	ActionDeleteBill         = "DELETE_BILL"
	ActionBulkDeleteBills    = "BULK_DELETE_BILLS"
	ActionCloneBills         = "CLONE_BILLS"
	ActionUpdateProfile      = "UPDATE_PROFILE"
	ActionUpdateMerchantIcon = "UPDATE_MERCHANT_ICON"
	ActionDeleteMerchant     = "DELETE_MERCHANT"
)

type (
	// Bill is a single payable or receivable anchored to a calendar day.
	Bill struct {
		ID                  string           `json:"id"`
		UserID              string           `json:"userId"`
		Date                Date             `json:"date"`
		Payee               *string          `json:"payee"`
		Payer               *string          `json:"payer"`
		PayAmount           *decimal.Decimal `json:"payAmount"`
		ReceiveAmount       *decimal.Decimal `json:"receiveAmount"`
		IsPaid              bool             `json:"isPaid"`
		PaidDate            *Date            `json:"paidDate"`
		ActualReceiveAmount *decimal.Decimal `json:"actualReceiveAmount"`
		Notes               *string          `json:"notes"`
		IsRecurring         bool             `json:"isRecurring"`
		RecurringInterval   *int             `json:"recurringInterval"`
		CreatedAt           time.Time        `json:"createdAt"`
		UpdatedAt           time.Time        `json:"updatedAt"`

		// CloneKey is set only on bills produced by the reconciler.
		CloneKey *string `json:"-"`
	}

	// BillView is a bill enriched with the icons of its counterparties.
	BillView struct {
		Bill
		PayeeIcon *string `json:"payeeIcon"`
		PayerIcon *string `json:"payerIcon"`
	}

	// BillPatch carries a partial update. Unset fields are left untouched.
	BillPatch struct {
		Date                Optional[Date]            `json:"date"`
		Payee               Optional[string]          `json:"payee"`
		Payer               Optional[string]          `json:"payer"`
		PayAmount           Optional[decimal.Decimal] `json:"payAmount"`
		ReceiveAmount       Optional[decimal.Decimal] `json:"receiveAmount"`
		IsPaid              *bool                     `json:"isPaid"`
		PaidDate            Optional[Date]            `json:"paidDate"`
		ActualReceiveAmount Optional[decimal.Decimal] `json:"actualReceiveAmount"`
		Notes               Optional[string]          `json:"notes"`
		IsRecurring         *bool                     `json:"isRecurring"`
		RecurringInterval   Optional[int]             `json:"recurringInterval"`
	}

	User struct {
		ID             string    `json:"id"`
		Username       string    `json:"username"`
		PasswordHash   string    `json:"-"`
		Nickname       *string   `json:"nickname"`
		TelegramToken  *string   `json:"telegramToken"`
		TelegramChatID *string   `json:"telegramChatId"`
		CreatedAt      time.Time `json:"createdAt"`
	}

	// ProfileUpdate mirrors the editable profile fields.
	ProfileUpdate struct {
		Nickname       Optional[string]
		Password       string
		TelegramToken  Optional[string]
		TelegramChatID Optional[string]
	}

	Merchant struct {
		ID        string    `json:"id,omitempty"`
		UserID    string    `json:"userId,omitempty"`
		Name      string    `json:"name"`
		Icon      *string   `json:"icon"`
		UpdatedAt time.Time `json:"updatedAt,omitempty"`
	}

	ActivityEntry struct {
		ID        string    `json:"id"`
		UserID    string    `json:"userId"`
		Action    string    `json:"action"`
		Details   string    `json:"details"`
		IP        string    `json:"ip"`
		CreatedAt time.Time `json:"createdAt"`
	}
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

// MinPasswordLength is enforced when creating users or changing passwords.
const MinPasswordLength = 6

// IsEdited reports whether the user has acted on the bill since it was created.
func (b Bill) IsEdited() bool {
	return b.IsPaid || b.ActualReceiveAmount != nil
}

// DisplayName returns payee, then payer, then "Unknown".
func (b Bill) DisplayName() string {
	if s := StringValue(b.Payee); s != "" {
		return s
	}
	if s := StringValue(b.Payer); s != "" {
		return s
	}
	return "Unknown"
}

// DisplayAmount returns payAmount, then receiveAmount, then zero.
func (b Bill) DisplayAmount() decimal.Decimal {
	if b.PayAmount != nil {
		return *b.PayAmount
	}
	if b.ReceiveAmount != nil {
		return *b.ReceiveAmount
	}
	return decimal.Zero
}

func (b Bill) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return ErrUnauthorized
	}
	if err := b.Date.Validate(); err != nil {
		return err
	}
	for _, amount := range []*decimal.Decimal{b.PayAmount, b.ReceiveAmount, b.ActualReceiveAmount} {
		if amount != nil && amount.IsNegative() {
			return ErrInvalidAmount
		}
	}
	if b.PaidDate != nil {
		if err := b.PaidDate.Validate(); err != nil {
			return err
		}
	}
	if b.RecurringInterval != nil && *b.RecurringInterval < 0 {
		return errors.Join(ErrInvalidInput, errors.New("recurring interval cannot be negative"))
	}
	if b.Notes != nil && len(*b.Notes) > 2000 {
		return errors.Join(ErrInvalidInput, errors.New("notes too long (max 2000 characters)"))
	}
	return nil
}

// Apply merges the patch into a copy of the bill.
func (p BillPatch) Apply(b Bill) Bill {
	if p.Date.Set && p.Date.Value != nil {
		b.Date = *p.Date.Value
	}
	if p.Payee.Set {
		b.Payee = p.Payee.Value
	}
	if p.Payer.Set {
		b.Payer = p.Payer.Value
	}
	if p.PayAmount.Set {
		b.PayAmount = p.PayAmount.Value
	}
	if p.ReceiveAmount.Set {
		b.ReceiveAmount = p.ReceiveAmount.Value
	}
	if p.IsPaid != nil {
		b.IsPaid = *p.IsPaid
	}
	if p.PaidDate.Set {
		b.PaidDate = p.PaidDate.Value
	}
	if p.ActualReceiveAmount.Set {
		b.ActualReceiveAmount = p.ActualReceiveAmount.Value
	}
	if p.Notes.Set {
		b.Notes = p.Notes.Value
	}
	if p.IsRecurring != nil {
		b.IsRecurring = *p.IsRecurring
	}
	if p.RecurringInterval.Set {
		b.RecurringInterval = p.RecurringInterval.Value
	}
	return b
}

// ValidateCredentials checks the shape of a username/password pair.
func ValidateCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return errors.Join(ErrInvalidInput, errors.New("username and password required"))
	}
	if len(username) > 64 {
		return errors.Join(ErrInvalidInput, errors.New("username too long (max 64 characters)"))
	}
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// UnmarshalJSON decodes a bill, accepting amounts as JSON numbers or as
// quoted form values.
func (b *Bill) UnmarshalJSON(data []byte) error {
	type plain Bill
	aux := struct {
		*plain
		PayAmount           jsonAmount `json:"payAmount"`
		ReceiveAmount       jsonAmount `json:"receiveAmount"`
		ActualReceiveAmount jsonAmount `json:"actualReceiveAmount"`
	}{plain: (*plain)(b)}
	aux.PayAmount.v, aux.ReceiveAmount.v, aux.ActualReceiveAmount.v = b.PayAmount, b.ReceiveAmount, b.ActualReceiveAmount
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	b.PayAmount, b.ReceiveAmount, b.ActualReceiveAmount = aux.PayAmount.v, aux.ReceiveAmount.v, aux.ActualReceiveAmount.v
	return nil
}

// UnmarshalJSON keeps the icons, which the promoted Bill decoder would drop.
func (v *BillView) UnmarshalJSON(data []byte) error {
	if err := v.Bill.UnmarshalJSON(data); err != nil {
		return err
	}
	var icons struct {
		PayeeIcon *string `json:"payeeIcon"`
		PayerIcon *string `json:"payerIcon"`
	}
	if err := json.Unmarshal(data, &icons); err != nil {
		return err
	}
	v.PayeeIcon, v.PayerIcon = icons.PayeeIcon, icons.PayerIcon
	return nil
}

// CloneKey identifies an auto-generated bill within a month by its
// counterparties. Nil and empty names are the same key. Each name is
// length-prefixed so separators inside names cannot collide.
func CloneKey(p Period, payee, payer *string) string {
	pe, pr := StringValue(payee), StringValue(payer)
	return fmt.Sprintf("%s|%d:%s|%d:%s", p, len(pe), pe, len(pr), pr)
}

// StringValue dereferences s, treating nil as empty.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NullIfEmpty returns nil for nil or blank strings.
func NullIfEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
