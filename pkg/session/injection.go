package session

import "fmt"

// Injection is text added to the conversation on the user's behalf.
// Context carries what the assistant should know; Display is the short
// line shown as the user's turn.
type Injection struct {
	Context string
	Display string
}

// Text renders the injection as sent to the conversation service. Without
// a display line the context is sent bare.
func (i Injection) Text() string {
	if i.Display == "" {
		return i.Context
	}
	return fmt.Sprintf("[SYSTEM CONTEXT: %s] %s", i.Context, i.Display)
}

// CameraInjection tells the assistant the user just turned their camera on.
func CameraInjection(caption, assistant string) Injection {
	return Injection{
		Context: fmt.Sprintf("The user just enabled their camera. %s "+
			"Acknowledge that you can now see them and comment warmly on what you observe.", caption),
		Display: fmt.Sprintf("Turned on Camera - Image sent to %s", assistant),
	}
}

// PictureInjection tells the assistant about a photo the user took.
func PictureInjection(caption, assistant string) Injection {
	return Injection{
		Context: fmt.Sprintf("The user just took a picture to show you. Here's what's in the image: %s. "+
			"First, acknowledge that you received the photo and describe what you see in a warm, friendly way. "+
			"Then, ask the user why they wanted to take this photo or how it's relevant to them - "+
			"be curious and engaged about what made them want to share this with you.", caption),
		Display: fmt.Sprintf("Took a picture - sent to %s", assistant),
	}
}
