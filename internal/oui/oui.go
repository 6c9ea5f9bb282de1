// Package oui maps the first three octets of a MAC address to a vendor
// name, and applies the device-categorisation rule set from §4.5 step 4.
package oui

import "strings"

// vendors is a built-in OUI → vendor map. It is intentionally small: the
// original NetGuard Pro shipped a hand-curated list covering the vendors
// actually seen on a home/small-office LAN, not a full IEEE OUI database.
var vendors = map[string]string{
	"B8:27:EB": "Raspberry Pi Foundation",
	"DC:A6:32": "Raspberry Pi Foundation",
	"E4:5F:01": "Raspberry Pi Foundation",
	"00:1A:11": "Google",
	"F4:F5:D8": "Google",
	"3C:5A:B4": "Google",
	"A4:77:33": "Google",
	"F0:27:2D": "Amazon Technologies",
	"44:65:0D": "Amazon Technologies",
	"68:37:E9": "Amazon Technologies",
	"FC:65:DE": "Amazon Technologies",
	"00:17:88": "Philips Lighting (Hue)",
	"EC:B5:FA": "Philips Lighting (Hue)",
	"AC:63:BE": "TP-Link",
	"50:C7:BF": "TP-Link",
	"98:DA:C4": "TP-Link",
	"00:1D:7E": "Cisco",
	"00:0C:29": "VMware",
	"00:50:56": "VMware",
	"08:00:27": "Oracle VirtualBox",
	"52:54:00": "QEMU/KVM",
	"B0:34:95": "Apple",
	"A4:5E:60": "Apple",
	"DC:A9:04": "Apple",
	"3C:06:30": "Apple",
	"D8:31:CF": "Roku",
	"CC:6D:A0": "Roku",
	"18:B4:30": "Nest Labs",
	"64:16:66": "Nest Labs",
	"D0:52:A8": "Sonos",
	"78:28:CA": "Sonos",
	"EC:1A:59": "Belkin (Wemo)",
	"94:10:3E": "Belkin (Wemo)",
	"B0:C5:54": "D-Link",
	"90:8D:78": "D-Link",
	"74:DA:38": "Edimax (risky default-credential vendor)",
}

// riskyVendors lists vendors with a well-known history of shipping
// default/weak credentials on consumer hardware — used by §4.6's
// default-credentials risk check.
var riskyVendors = map[string]bool{
	"Edimax (risky default-credential vendor)": true,
	"D-Link":                                   true,
	"TP-Link":                                  true,
}

// Lookup returns the vendor for a MAC address's OUI, or "Unknown".
func Lookup(mac string) string {
	prefix := ouiPrefix(mac)
	if prefix == "" {
		return "Unknown"
	}
	if v, ok := vendors[prefix]; ok {
		return v
	}
	return "Unknown"
}

// IsRiskyVendor reports whether vendor has a known history of
// default-credential devices.
func IsRiskyVendor(vendor string) bool {
	return riskyVendors[vendor]
}

func ouiPrefix(mac string) string {
	mac = strings.ToUpper(strings.TrimSpace(mac))
	parts := strings.FieldsFunc(mac, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[:3], ":")
}

// Categorize applies the ordered rule set from §4.5 step 4 over a
// lower-cased hostname and vendor, returning (deviceType, category).
// Rules are ordered; the first match wins. An explicit IoT rule beats a
// generic Computer rule on ambiguity.
func Categorize(hostname, vendor string) (deviceType string, category string) {
	h := strings.ToLower(strings.TrimSpace(hostname))
	v := strings.ToLower(strings.TrimSpace(vendor))

	switch {
	case strings.Contains(v, "raspberry pi"):
		return "IoT", "Raspberry Pi"
	case strings.Contains(v, "philips") || strings.Contains(h, "hue"):
		return "IoT", "Smart Light"
	case strings.Contains(v, "nest") || strings.Contains(h, "nest") || strings.Contains(h, "thermostat"):
		return "IoT", "Smart Thermostat"
	case strings.Contains(v, "sonos") || strings.Contains(h, "sonos") || strings.Contains(h, "speaker"):
		return "IoT", "Smart Speaker"
	case strings.Contains(v, "belkin") || strings.Contains(h, "wemo") || strings.Contains(h, "plug"):
		return "IoT", "Smart Plug"
	case strings.Contains(v, "amazon") && (strings.Contains(h, "echo") || strings.Contains(h, "alexa") || strings.Contains(h, "ring")):
		return "IoT", "Smart Speaker"
	case strings.Contains(v, "roku") || strings.Contains(h, "roku") || strings.Contains(h, "tv") || strings.Contains(h, "chromecast"):
		return "IoT", "Smart TV"
	case strings.Contains(v, "google") && strings.Contains(h, "cast"):
		return "IoT", "Smart TV"
	case strings.Contains(v, "cisco") || strings.Contains(v, "tp-link") || strings.Contains(v, "d-link") ||
		strings.Contains(h, "router") || strings.Contains(h, "switch") || strings.Contains(h, "gateway") || strings.Contains(h, "ap"):
		return "Network", "Router/Switch"
	case strings.Contains(v, "vmware") || strings.Contains(v, "virtualbox") || strings.Contains(v, "qemu") || strings.Contains(v, "kvm"):
		return "Virtual", "Virtual Machine"
	case strings.Contains(h, "server") || strings.Contains(h, "nas"):
		return "Server", "Server"
	case strings.Contains(v, "apple") && (strings.Contains(h, "iphone") || strings.Contains(h, "ipad")):
		return "Mobile", "Phone/Tablet"
	case strings.Contains(h, "android") || strings.Contains(h, "phone") || strings.Contains(h, "iphone") || strings.Contains(h, "galaxy"):
		return "Mobile", "Phone/Tablet"
	case strings.Contains(v, "apple") || strings.Contains(h, "macbook") || strings.Contains(h, "imac") ||
		strings.Contains(h, "desktop") || strings.Contains(h, "laptop") || strings.Contains(h, "pc"):
		return "Computer", "Workstation"
	default:
		return "Unknown", "Unknown"
	}
}
