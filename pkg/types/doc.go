// Package types defines the data structures shared by the drive pool packages:
// provider configuration, selection groups and the provider error taxonomy.
package types
