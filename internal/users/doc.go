// Package users is the access-control layer in front of the bot: per-user
// sliding-window rate limiting, block and whitelist checks, auto
// registration, and the operator actions behind the admin API.
package users
