// Package micstate holds the rules of a mic session that do not depend on
// storage or transport: the signup state of a mic, the ordering of its
// roster, and which performer is up.  Every function is pure over the
// values it receives so the server, the client and the tests derive the
// same answers from the same snapshot.
package micstate
