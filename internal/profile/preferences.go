package profile

import (
	"strings"

	"github.com/xkilldash9x/ebaybot/internal/browser/stealth"
)

// Chromium content setting values.
const (
	contentAllow = 1
	contentBlock = 2
)

// preferences builds the Default/Preferences document for a fresh profile.
// Chromium merges it on first start, so only keys that differ from stock
// behaviour are listed.
func preferences(p stealth.Persona) map[string]interface{} {
	return map[string]interface{}{
		"intl": map[string]interface{}{
			"accept_languages": strings.Join(p.Languages, ","),
		},
		// Keep the real address out of ICE candidates.
		"webrtc": map[string]interface{}{
			"ip_handling_policy":      "disable_non_proxied_udp",
			"multiple_routes_enabled": false,
			"nonproxied_udp_enabled":  false,
		},
		"profile": map[string]interface{}{
			"default_content_setting_values": map[string]interface{}{
				"geolocation":         contentBlock,
				"media_stream_camera": contentBlock,
				"media_stream_mic":    contentBlock,
				"notifications":       contentBlock,
				"sensors":             contentBlock,
				"midi_sysex":          contentBlock,
				"cookies":             contentAllow,
			},
			"password_manager_enabled": false,
			"exit_type":                "Normal",
			"exited_cleanly":           true,
		},
		"credentials_enable_service": false,
		"browser": map[string]interface{}{
			"check_default_browser": false,
			"has_seen_welcome_page": true,
		},
		"distribution": map[string]interface{}{
			"skip_first_run_ui":                         true,
			"suppress_first_run_default_browser_prompt": true,
			"import_bookmarks":                          false,
			"import_history":                            false,
		},
		"session": map[string]interface{}{
			// 5 = open the new tab page.
			"restore_on_startup": 5,
		},
		"safebrowsing": map[string]interface{}{
			"enabled":                 false,
			"scout_reporting_enabled": false,
		},
		"user_experience_metrics": map[string]interface{}{
			"reporting_enabled": false,
		},
		"net": map[string]interface{}{
			// 2 = never prefetch or preconnect.
			"network_prediction_options": 2,
		},
		"tracking_protection": map[string]interface{}{
			"tracking_protection_3pcd_enabled": false,
		},
		"enable_do_not_track": false,
		"enable_referrers":    true,
		"extensions": map[string]interface{}{
			"ui": map[string]interface{}{
				"developer_mode": true,
			},
		},
	}
}
