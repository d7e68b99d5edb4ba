// Package publish schedules and drafts posts on the target site's REST API.
package publish
