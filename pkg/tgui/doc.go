// Package tgui provides small Telegram UI helpers:
//   - Inline and reply keyboard builders
//   - Callback data helpers (action_payload)
//   - A simple, safe message builder with sensible defaults
//   - Slice pagination for long button lists
//
// Design goals:
//   - Ergonomic for handlers (one builder covers text + send options)
//   - Safe by default for Telegram ParseMode="HTML" (auto escaping)
//   - Reusable patterns for prompts, lists and menus
package tgui
