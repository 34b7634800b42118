package siteinstaller

// ResetProcessRoot forgets the fixed process root so tests can use fresh
// temporary roots.
func ResetProcessRoot() { resetProcessRoot() }
