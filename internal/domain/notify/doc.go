// Package notify produces human-readable collaboration notifications.
package notify
