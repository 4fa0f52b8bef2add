package fastpanel

import "encoding/json"

type Domain struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Mailbox is the panel's mailbox record. Quota, Redirects and Aliases are
// kept as raw JSON because the update call must echo them back byte-exact;
// this client never interprets them.
type Mailbox struct {
	ID         int64           `json:"id"`
	Login      string          `json:"login"`
	Quota      json.RawMessage `json:"quota"`
	Redirects  json.RawMessage `json:"redirects"`
	Aliases    json.RawMessage `json:"aliases"`
	SpamToJunk bool            `json:"spam_to_junk"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse covers both the success and the error shape of /login.
// Presence of fields, not HTTP status, is what distinguishes them.
type loginResponse struct {
	Code    *int64  `json:"code"`
	Message *string `json:"message"`
	Data    *struct {
		Token string `json:"token"`
	} `json:"data"`
}

type domainListResponse struct {
	Data *[]Domain `json:"data"`
}

type mailboxListResponse struct {
	Data *[]Mailbox `json:"data"`
}

type updateRequest struct {
	Password   string          `json:"password"`
	Quota      json.RawMessage `json:"quota"`
	Redirects  json.RawMessage `json:"redirects"`
	Aliases    json.RawMessage `json:"aliases"`
	SpamToJunk bool            `json:"spam_to_junk"`
}

type updateResponse struct {
	Errors *struct {
		Password string `json:"password"`
	} `json:"errors"`
	Data *struct {
		ID *int64 `json:"id"`
	} `json:"data"`
}
