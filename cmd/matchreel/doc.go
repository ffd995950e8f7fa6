// Command matchreel runs the highlight daemon and talks to it over its HTTP
// API: submitting matches, inspecting and steering jobs, and reporting on
// endpoint health and clip storage.
package main
