package push

import (
	"fmt"
	"strings"
)

const (
	deviceIconURL = "http://www.pushbullet.com/img/deviceicons/%s.png"
	phoneIconURL  = "http://www.pushbullet.com/img/deviceicons/phone.png"
)

// ResolveIcon picks an image for a push. Precedence, first non-empty wins:
// mirror screenshot (inline data URI), channel image, device image, account
// image. When several table rows match, the last one wins.
func ResolveIcon(raw Raw, ref ReferenceData) string {
	var dataURL string
	if raw.Type == TypeMirror && raw.Icon != "" {
		dataURL = "data:image/jpeg;base64," + raw.Icon
	}

	var channelImage string
	if raw.ClientIden != "" {
		for _, g := range ref.Grants {
			if g.Client.Iden == raw.ClientIden {
				channelImage = g.Client.ImageURL
			}
		}
	}

	var deviceImage string
	if raw.SourceDeviceIden != "" {
		for _, d := range ref.Devices {
			if d.Iden == raw.SourceDeviceIden && d.Icon != "" {
				deviceImage = fmt.Sprintf(deviceIconURL, d.Icon)
			}
		}
	}
	if raw.Type == TypeSMSChanged {
		deviceImage = phoneIconURL
	}

	var accountImage string
	if raw.ReceiverIden != "" {
		for _, a := range ref.Accounts {
			if strings.HasPrefix(a.Iden, raw.ReceiverIden) {
				accountImage = a.ImageURL
			}
		}
	}

	return firstNonEmpty(dataURL, channelImage, deviceImage, accountImage)
}
