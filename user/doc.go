// Package user maps external identities (WeChat openids) onto stable local
// user IDs, creating the local user on first sight.
//
// [SQLStore] keeps users in MySQL through gorm. [RedisStore] keeps the
// mapping in a Redis hash with an INCR sequence and serves development
// setups and tests. Both are safe for concurrent first logins of the same
// identity: exactly one local ID is ever assigned.
package user
