// Package wire defines the chat socket's JSON frames.
//
// Inbound frames are JSON objects. The canonical field names are
//
//	type, message, file, sender_id, sender_name, group_id, id, timestamp
//
// Frames carrying "v": 2 must use exactly these names. Frames without a version marker (or
// with "v": 1) come from older servers and may use legacy names instead; a legacy name is
// consulted only when the canonical one is absent:
//
//	message_type             -> type
//	text_message             -> message
//	file_url, file_message   -> file (in that order)
//	sender                   -> sender_id
//
// Identifiers may be JSON strings or numbers; both decode to their string form.
// A frame with no type is a control frame (presence, acks) and is never forwarded to the host.
// A typed frame with no sender after fallbacks is rejected.
//
// Outbound frames carry {id, message_type, message, sender, file_url} and are built with
// NewTextMessage and NewFileMessage.
package wire
