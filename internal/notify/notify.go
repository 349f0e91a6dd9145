// Package notify delivers push notifications, either straight to APNs with
// a provider token or through a shared relay server. Both clients treat
// delivery as best effort: failures are logged and reported as false, never
// returned as errors.
package notify

// payload is the APNs alert body shared by both delivery paths.
type payload struct {
	APS aps `json:"aps"`
}

type aps struct {
	Alert alert  `json:"alert"`
	Sound string `json:"sound"`
	Badge int    `json:"badge"`
}

type alert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func buildPayload(title, body string, badge int) payload {
	return payload{APS: aps{
		Alert: alert{Title: title, Body: body},
		Sound: "default",
		Badge: badge,
	}}
}
