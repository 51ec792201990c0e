// Package netshell provides a screen-scraping network automation client.
//
// It opens an interactive shell session to a network device over SSH or
// Telnet and drives that session the way a human operator would: sending
// commands, reading back text, detecting prompts, moving between
// privilege levels, and returning structured results.
//
// The core of the package is the Channel/privilege-level engine in the
// channel and privilege subpackages, composed by a driver.Session. The
// concrete byte transport (SSH, Telnet, or a test mock) is an external
// collaborator behind the transport.Transport interface; see the
// transport subpackages for the shipped implementations.
package netshell
