package models

import (
	"encoding/json"
	"fmt"
)

// LocationKind tags where the bytes of an asset live.
type LocationKind string

const (
	LocationUnset  LocationKind = ""
	LocationRemote LocationKind = "remote"
	LocationLocal  LocationKind = "local"
)

// Location is a tagged storage pointer: a remote URL (http(s) or gs://), a
// local filesystem path, or nothing at all.
type Location struct {
	Kind  LocationKind
	Value string
}

func RemoteLocation(url string) Location {
	return Location{Kind: LocationRemote, Value: url}
}

func LocalLocation(path string) Location {
	return Location{Kind: LocationLocal, Value: path}
}

// ParseLocation rebuilds a Location from its persisted columns.
func ParseLocation(kind, value string) (Location, error) {
	switch LocationKind(kind) {
	case LocationUnset:
		return Location{}, nil
	case LocationRemote, LocationLocal:
		if value == "" {
			return Location{}, fmt.Errorf("location kind %q has empty value", kind)
		}
		return Location{Kind: LocationKind(kind), Value: value}, nil
	default:
		return Location{}, fmt.Errorf("unknown location kind %q", kind)
	}
}

func (l Location) IsSet() bool {
	return l.Kind != LocationUnset && l.Value != ""
}

func (l Location) String() string {
	if !l.IsSet() {
		return "unset"
	}
	return string(l.Kind) + ":" + l.Value
}

type locationJSON struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

func (l Location) MarshalJSON() ([]byte, error) {
	if !l.IsSet() {
		return []byte("null"), nil
	}
	return json.Marshal(locationJSON{Kind: string(l.Kind), Value: l.Value})
}
