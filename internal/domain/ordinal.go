package domain

import (
	"encoding/json"
	"strings"
)

// Ordinal is an inscription held by the wallet. Content is the text the
// wallet reports for the inscription; Data is its free-form metadata.
type Ordinal struct {
	ID       string          `json:"id"`
	Outpoint string          `json:"outpoint"`
	Content  string          `json:"content,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// OrdinalPage is one page of the wallet's ordinals. From is the cursor of
// the next page and is empty on the last one.
type OrdinalPage struct {
	Ordinals []Ordinal `json:"ordinals"`
	From     string    `json:"from,omitempty"`
}

// OwnedName is a name inscription in the user's wallet.
type OwnedName struct {
	Name     string `json:"name"`
	Outpoint string `json:"outpoint"`
}

type ordinalData struct {
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

// NameOf returns the qualified name o carries under nameDomain.
func (o Ordinal) NameOf(nameDomain string) (string, bool) {
	suffix := "@" + nameDomain
	if strings.Contains(o.Content, suffix) {
		return strings.TrimSpace(o.Content), true
	}
	if len(o.Data) == 0 {
		return "", false
	}

	var text string
	if err := json.Unmarshal(o.Data, &text); err == nil {
		if strings.Contains(text, suffix) {
			return strings.TrimSpace(text), true
		}
		return "", false
	}

	var data ordinalData
	if err := json.Unmarshal(o.Data, &data); err != nil {
		return "", false
	}
	switch {
	case strings.Contains(data.Name, suffix):
		return data.Name, true
	case strings.HasSuffix(data.Handle, suffix):
		return data.Handle, true
	}
	return "", false
}

// OwnedNames keeps the ordinals that are names under nameDomain.
func OwnedNames(ordinals []Ordinal, nameDomain string) []OwnedName {
	var names []OwnedName
	for _, o := range ordinals {
		if name, ok := o.NameOf(nameDomain); ok {
			names = append(names, OwnedName{Name: name, Outpoint: o.Outpoint})
		}
	}
	return names
}
