package model

// DefaultEmailSubject is used when the caller omits a subject.
const DefaultEmailSubject = "Travel Guide Bot: Landmark Details"

// EmailRequest describes a plain-text email to a single recipient.
type EmailRequest struct {
	Recipient string
	Body      string
	Subject   string
}

// ItineraryPayload is the JSON body accepted by the itinerary endpoint.
// Subject is a pointer so an explicit empty subject can be told apart from a missing one.
type ItineraryPayload struct {
	Email     string  `json:"email"`
	Itinerary string  `json:"itinerary"`
	Subject   *string `json:"subject"`
}

// EmailRequest converts the payload, applying the default subject.
func (payload ItineraryPayload) EmailRequest() EmailRequest {
	subject := DefaultEmailSubject
	if payload.Subject != nil {
		subject = *payload.Subject
	}
	return EmailRequest{
		Recipient: payload.Email,
		Body:      payload.Itinerary,
		Subject:   subject,
	}
}
