// Package redis implements the consumption store on Redis.
//
// Each consumed authorization ID becomes a key written with SET NX and no
// expiry, so the unconsumed-to-consumed transition is atomic across every
// validator instance sharing the Redis deployment and the record never
// lapses back to unconsumed.
package redis
