package models

import "fmt"

// Kind discriminates the upstream surfaces a record can originate from.
type Kind string

const (
	// KindAPI is the JSON announce API; an installation may watch several
	// API servers, distinguished by ServerID.
	KindAPI Kind = "api"
	// KindWebsite is the paginated HTML news site.
	KindWebsite Kind = "website"
	// KindCartoon is the JSON cartoon (comic episode) listing.
	KindCartoon Kind = "cartoon"
)

// SourceKind identifies one upstream surface. It persists as a discriminated
// document {kind, server_id?} so records from different surfaces can be told
// apart inside a single post.
//
// Two SourceKind values are comparable with ==; ServerID is only meaningful
// for KindAPI and stays empty otherwise.
type SourceKind struct {
	Kind     Kind   `bson:"kind" json:"kind"`
	ServerID string `bson:"server_id,omitempty" json:"server_id,omitempty"`
}

// APISource returns the SourceKind for one announce API server.
func APISource(serverID string) SourceKind {
	return SourceKind{Kind: KindAPI, ServerID: serverID}
}

// WebsiteSource returns the SourceKind for the news website.
func WebsiteSource() SourceKind {
	return SourceKind{Kind: KindWebsite}
}

// CartoonSource returns the SourceKind for the cartoon listing.
func CartoonSource() SourceKind {
	return SourceKind{Kind: KindCartoon}
}

// String renders "api:P1", "website" or "cartoon"; used in logs and post ids.
func (s SourceKind) String() string {
	if s.Kind == KindAPI && s.ServerID != "" {
		return fmt.Sprintf("%s:%s", s.Kind, s.ServerID)
	}
	return string(s.Kind)
}
