// Package dedupe remembers recently seen platform event ids so that a
// frontend which re-polls overlapping windows forwards each event once.
package dedupe
