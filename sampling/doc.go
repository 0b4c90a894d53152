// Package sampling provides helpers for sampling/createMessage: request
// builders, validation, model selection, and a driver that answers a request
// from a streaming Sampler.
//
// Building a request:
//
//	req := sampling.NewCreateMessage(
//	    []mcp.SamplingMessage{sampling.UserText("Summarize this repository")},
//	    sampling.WithSystemPrompt("You are a terse summarizer."),
//	    sampling.WithTemperature(0.2),
//	    sampling.WithMaxTokens(256),
//	)
//	if err := sampling.ValidateCreateMessage(req); err != nil { return err }
//
// Serving requests: implement Sampler and pass it to mcpservice.WithSampler
// or client.WithSampler. Run selects a model with SelectModel and waits for
// the final chunk of the stream.
package sampling
