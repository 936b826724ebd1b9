package service

// Texts sent back to chat members. Each reply is a list of separate messages.
const (
	msgOnboardingUsage = "Usage:\n" +
		"To make an announcement, type 'annoy' or 'Annoy' as a command in the group chat.\n" +
		"Wait for my reply and send a message as an announcement."
	msgOnboardingInviteCode = "Before making announcements, let's first configure the invite code for the dashboard.\n" +
		"Below is a randomly generated string that you can use as an invite code:"
	msgOnboardingPrompt = "Now, please enter something into the chat as an invite code:"

	msgReceivingInfo = "Annoyncement bot is a self-hosted announcement system.\n" +
		"Announcements sent from the administrators' group will be relayed to this group."
	msgReceivingDashboard = "For group admins to configure the announcement bot, please visit the link below:\n%s"

	msgInviteCodeSet      = "Okay!"
	msgInviteCodeNextStep = "Now, invite me to other groups and use the invite code to gain access to the dashboard."

	msgAnnoyTypes  = "Currently supported announcement types:\nText message\nImage message"
	msgAnnoyPrompt = "Please enter the announcement or type 'cancel' or 'Cancel' to cancel:"

	msgCancelled        = "You cancelled an announcement."
	msgVideoUnsupported = "Video messages are currently unsupported. Your announcement is cancelled!"
	msgAudioUnsupported = "Audio messages are currently unsupported. Your announcement is cancelled!"
	msgFileUnsupported  = "Files cannot be relayed, your announcement is cancelled!"
	msgOtherUnsupported = "This message type is currently unsupported. Your announcement is cancelled!"

	msgRecipients   = "The following groups received the announcement:"
	msgNoRecipients = "No group is receiving announcements yet."

	msgLeft = "%s removed me from their group."

	msgActivatedGroup       = "Annoyncement bot has been successfully configured!"
	msgActivatedControlling = "%s is now receiving announcements"

	// MsgActivationSuccess is returned to the dashboard after a successful activation
	MsgActivationSuccess = "Annoyncement bot has been successfully configured!\n" +
		"Check the Telegram group for the confirmation message."
)
