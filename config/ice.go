package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DefaultSTUNURL is used when no ICE configuration exists anywhere.
const DefaultSTUNURL = "stun:stun.l.google.com:19302"

// ICEServer describes one STUN or TURN endpoint group.
type ICEServer struct {
	URLs       URLList `json:"urls"`
	Username   string  `json:"username,omitempty"`
	Credential string  `json:"credential,omitempty"`
}

// URLList accepts both a single URL string and an array of URL strings, the
// two shapes the iceServers config field allows.
type URLList []string

// UnmarshalJSON implements json.Unmarshaler.
func (u *URLList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*u = URLList{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("parse ice urls: %w", err)
	}
	*u = URLList(many)
	return nil
}

// ResolveICEServers picks the ICE server set by precedence: the
// CLIPSYNC_ICE_JSON env var, then CLIPSYNC_STUN_URLS / CLIPSYNC_TURN_URLS,
// then the iceServers field of the config file, then the default STUN server.
func ResolveICEServers(cfg *ClientConfig) []ICEServer {
	if raw := os.Getenv("CLIPSYNC_ICE_JSON"); raw != "" {
		var servers []ICEServer
		if err := json.Unmarshal([]byte(raw), &servers); err == nil && len(servers) > 0 {
			return servers
		}
	}

	stunURLs := parseCSV(os.Getenv("CLIPSYNC_STUN_URLS"))
	turnURLs := parseCSV(os.Getenv("CLIPSYNC_TURN_URLS"))
	if len(stunURLs) > 0 || len(turnURLs) > 0 {
		var servers []ICEServer
		if len(stunURLs) > 0 {
			servers = append(servers, ICEServer{URLs: stunURLs})
		}
		if len(turnURLs) > 0 {
			servers = append(servers, ICEServer{
				URLs:       turnURLs,
				Username:   os.Getenv("CLIPSYNC_TURN_USERNAME"),
				Credential: os.Getenv("CLIPSYNC_TURN_CREDENTIAL"),
			})
		}
		return servers
	}

	if cfg != nil && len(cfg.ICEServers) > 0 {
		return cfg.ICEServers
	}

	return []ICEServer{{URLs: URLList{DefaultSTUNURL}}}
}

func parseCSV(value string) URLList {
	if value == "" {
		return nil
	}

	var urls URLList
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			urls = append(urls, entry)
		}
	}
	return urls
}
