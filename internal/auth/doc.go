// Package auth issues and validates the HS256 service tokens used by relay.
//
// Two directions share one secret:
//   - outbound: the controller presents a RoleController token to every
//     target agent (see TokenSource), matching what the agents verify
//   - inbound: API callers present an operator or admin token, checked by
//     the API middleware against a static role-permission map
//
// There are no user accounts; tokens are minted by the operator with the
// relay CLI's token subcommand.
package auth
