package client

import (
	"encoding/json"
	"fmt"
)

// Designer is one profile record. The client treats it as opaque display data.
type Designer struct {
	Image       string `json:"image"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Color       string `json:"color"`
	Username    string `json:"username"`
	DisplayURL  string `json:"display_url"`
	ExpandedURL string `json:"expanded_url"`
}

// Info carries the page-independent part of a profiles response.
type Info struct {
	// NumFilteredDesigners is the total number of matches for the filters,
	// across all pages.
	NumFilteredDesigners int `json:"numFilteredDesigners"`
}

// ProfilePage is one page of the profiles endpoint.
type ProfilePage struct {
	Designers []Designer `json:"designers"`
	Info      Info       `json:"info"`
}

// Meta is the response of the meta endpoint.
type Meta struct {
	// NumDesignersPerTag maps a filter tag to the number of profiles carrying it.
	NumDesignersPerTag map[string]int `json:"numDesignersPerTag"`
}

// decodeProfilePage parses a profiles body. designers and
// info.numFilteredDesigners are required.
func decodeProfilePage(data []byte) (*ProfilePage, error) {
	var wire struct {
		Designers *[]Designer `json:"designers"`
		Info      *struct {
			NumFilteredDesigners *int `json:"numFilteredDesigners"`
		} `json:"info"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch {
	case wire.Designers == nil:
		return nil, fmt.Errorf("%w: missing designers", ErrDecode)
	case wire.Info == nil || wire.Info.NumFilteredDesigners == nil:
		return nil, fmt.Errorf("%w: missing info.numFilteredDesigners", ErrDecode)
	case *wire.Info.NumFilteredDesigners < 0:
		return nil, fmt.Errorf("%w: negative numFilteredDesigners %d", ErrDecode, *wire.Info.NumFilteredDesigners)
	}

	return &ProfilePage{
		Designers: *wire.Designers,
		Info:      Info{NumFilteredDesigners: *wire.Info.NumFilteredDesigners},
	}, nil
}

// decodeMeta parses a meta body. numDesignersPerTag is required.
func decodeMeta(data []byte) (*Meta, error) {
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if meta.NumDesignersPerTag == nil {
		return nil, fmt.Errorf("%w: missing numDesignersPerTag", ErrDecode)
	}
	return &meta, nil
}
