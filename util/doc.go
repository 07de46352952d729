// Package util provides small generic collection helpers shared by the
// flowkit packages.
package util
