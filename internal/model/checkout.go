package model

// CheckoutSession is the provider-side payment flow created for one
// participant.  It is never persisted as a whole; only its ID is stored on
// the pending participant and echoed back in the webhook metadata.
type CheckoutSession struct {
    ID            string            `json:"id"`
    RedirectURL   string            `json:"redirect_url"`
    Status        string            `json:"status"`
    AmountCents   int64             `json:"amount"`
    Currency      string            `json:"currency"`
    CompetitionID string            `json:"competition_id"`
    UserID        string            `json:"user_id"`
    Metadata      map[string]string `json:"-"`
}
