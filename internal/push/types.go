package push

// Type is the push variant discriminant.
type Type string

const (
	TypeNote       Type = "note"
	TypeLink       Type = "link"
	TypeFile       Type = "file"
	TypeMirror     Type = "mirror"
	TypeSMSChanged Type = "sms_changed"
)

// Known reports whether t is one of the variants with type-specific handling.
func (t Type) Known() bool {
	switch t {
	case TypeNote, TypeLink, TypeFile, TypeMirror, TypeSMSChanged:
		return true
	default:
		return false
	}
}

type Direction string

const (
	DirectionSelf     Direction = "self"
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// SMS is one entry of an sms_changed push's notifications list.
type SMS struct {
	Title     string  `json:"title"` // phone number or contact name
	Body      string  `json:"body"`
	Timestamp float64 `json:"timestamp"` // unix seconds
	ImageURL  string  `json:"image_url,omitempty"`
	ThreadID  string  `json:"thread_id,omitempty"`
}

// Raw is a push as delivered by the real-time client. Only the union of
// fields the relay reads is declared; anything else in the payload is
// ignored by the JSON decoder.
type Raw struct {
	Iden      string    `json:"iden"`
	Type      Type      `json:"type"`
	Active    bool      `json:"active"`
	Dismissed bool      `json:"dismissed"`
	Direction Direction `json:"direction"`
	Created   float64   `json:"created"`
	Modified  float64   `json:"modified"`

	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	URL   string `json:"url,omitempty"`

	FileName string `json:"file_name,omitempty"`
	FileType string `json:"file_type,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	ImageURL string `json:"image_url,omitempty"`

	ApplicationName string `json:"application_name,omitempty"`
	PackageName     string `json:"package_name,omitempty"`
	Icon            string `json:"icon,omitempty"` // base64 jpeg (mirror)

	Notifications []SMS `json:"notifications,omitempty"`

	SenderName       string `json:"sender_name,omitempty"`
	ReceiverIden     string `json:"receiver_iden,omitempty"`
	ClientIden       string `json:"client_iden,omitempty"`
	SourceDeviceIden string `json:"source_device_iden,omitempty"`
	TargetDeviceIden string `json:"target_device_iden,omitempty"`
}

// Normalized is the canonical, display-ready form of a push.
type Normalized struct {
	Type      Type      `json:"type"`
	Iden      string    `json:"iden"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	Created   float64   `json:"created"`
	Modified  float64   `json:"modified"`
	Direction Direction `json:"direction"`
	Dismissed bool      `json:"dismissed"`
	Active    bool      `json:"active"`

	TargetDeviceIden string `json:"target_device_iden,omitempty"`
	// EmptySMS marks an sms_changed push whose notifications list was empty.
	EmptySMS bool `json:"empty_sms,omitempty"`
}

// ReferenceData holds the account/device/channel tables used to pick an
// icon for a push. It is owned by the push source and refreshed out of band.
type ReferenceData struct {
	Accounts []Account `json:"accounts"`
	Devices  []Device  `json:"devices"`
	Grants   []Grant   `json:"grants"`
}

type Account struct {
	Iden     string `json:"iden"`
	ImageURL string `json:"image_url,omitempty"`
}

type Device struct {
	Iden     string `json:"iden"`
	Icon     string `json:"icon,omitempty"` // "phone", "laptop", ...
	Nickname string `json:"nickname,omitempty"`
}

type Grant struct {
	Iden   string      `json:"iden,omitempty"`
	Client GrantClient `json:"client"`
}

type GrantClient struct {
	Iden     string `json:"iden"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}
