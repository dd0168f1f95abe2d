package model

import "time"

// SourceRecord is an uploaded performance artifact (match video and/or a
// GPS track) owned by a user. At most one active analysis job references a
// record at any time; historical failed jobs may accumulate.
type SourceRecord struct {
	ID             string            `json:"id"`
	OwnerID        string            `json:"ownerId"`
	VideoReference *string           `json:"videoReference,omitempty"`
	GPSReference   *string           `json:"gpsReference,omitempty"`
	CapturedAt     time.Time         `json:"capturedAt"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Status         RecordStatus      `json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// HasSource reports whether at least one analyzable reference is present.
func (r *SourceRecord) HasSource() bool {
	return (r.VideoReference != nil && *r.VideoReference != "") ||
		(r.GPSReference != nil && *r.GPSReference != "")
}
