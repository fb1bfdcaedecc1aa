package fixtures

import (
	"github.com/appdistillery/brain/router"
	"github.com/appdistillery/brain/schema"
)

// DefaultTask returns a router.Task[Profile] suitable as a baseline in
// router tests; override fields on the returned value as needed.
func DefaultTask(principalID, prompt string) router.Task[Profile] {
	s, _ := schema.For[Profile]("a user profile")
	return router.Task[Profile]{
		PrincipalID:  principalID,
		TaskType:     "agency.profile",
		SystemPrompt: "Extract the user's profile from the request.",
		UserPrompt:   prompt,
		Schema:       s,
	}
}

// TaskWithProvider is DefaultTask pinned to a specific provider.
func TaskWithProvider(principalID, prompt string, provider router.Provider) router.Task[Profile] {
	t := DefaultTask(principalID, prompt)
	t.Options.Provider = provider
	return t
}
