// Package notifications renders and delivers operator messages.
//
// Messages are named templates (subject and body) embedded in the binary and
// filled from a map of values. The initiating user is always added as a
// recipient. Delivery goes through SMTP, an ntfy topic, or nowhere when the
// backend is "none".
package notifications
