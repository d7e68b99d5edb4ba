// Package ai calls the chat-completions API that judges and proposes
// original-work and character attributions for backlog jobs.
package ai
