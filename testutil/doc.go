// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil provides shared test helpers for the router's package
tests: context builders, assertions, and channel/benchmark utilities, so
individual packages don't reimplement the same scaffolding.

# Subpackages

  - testutil/mocks: test doubles for providers.Adapter and usage.Ledger,
    both builder-style with error injection and call recording
  - testutil/fixtures: sample Task/Result values and JSON schema fixtures

# Example

	ctx := testutil.TestContext(t)
	adapter := mocks.NewSuccessAdapter(providers.Anthropic, json.RawMessage(`{"ok":true}`))
	resp, err := adapter.GenerateStructured(ctx, req)
	testutil.AssertNoError(t, err)
*/
package testutil
