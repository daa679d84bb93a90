package models

import (
	"encoding/json"
	"math/rand"
)

// InfoData is the scalar-or-list payload of an info snippet. A single stored
// text serializes as a plain JSON string; once a second entry is appended the
// value is promoted to a JSON array and never demoted back.
type InfoData struct {
	Values []string
	List   bool
}

func (d InfoData) MarshalJSON() ([]byte, error) {
	if !d.List && len(d.Values) == 1 {
		return json.Marshal(d.Values[0])
	}
	return json.Marshal(d.Values)
}

func (d *InfoData) UnmarshalJSON(raw []byte) error {
	var scalar string
	if err := json.Unmarshal(raw, &scalar); err == nil {
		d.Values = []string{scalar}
		d.List = false
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return err
	}
	d.Values = list
	d.List = true
	return nil
}

// Append adds a text entry, promoting a scalar to a list on the second entry.
func (d *InfoData) Append(text string) {
	if len(d.Values) > 0 {
		d.List = true
	}
	d.Values = append(d.Values, text)
}

// Pick returns one entry, chosen by shuffling a copy and taking the first
// element (Fisher-Yates, uniform). A scalar returns its only value.
func (d InfoData) Pick() string {
	if len(d.Values) == 0 {
		return ""
	}
	if len(d.Values) == 1 {
		return d.Values[0]
	}
	pool := make([]string, len(d.Values))
	copy(pool, d.Values)
	shuffle(pool)
	return pool[0]
}

func shuffle(values []string) {
	for counter := len(values); counter > 0; {
		index := rand.Intn(counter)
		counter--
		values[counter], values[index] = values[index], values[counter]
	}
}

// InfoRecord is one free-text snippet topic, keyed by guild and lowercased
// name, retrievable in chat via ?<name>.
type InfoRecord struct {
	GuildID string   `gorm:"primaryKey;column:guild_id"`
	Name    string   `gorm:"primaryKey;column:name"`
	Data    InfoData `gorm:"column:data;serializer:json"`
}

func (InfoRecord) TableName() string {
	return "info_records"
}
