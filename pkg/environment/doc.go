// Package environment names the deployment environment the process runs in.
package environment
