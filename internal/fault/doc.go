// ABOUTME: Package documentation for fault translation.
// ABOUTME: Describes how fabric faults and errors become SOAP faults.

// Package fault maps internal fault outcomes and local call failures to SOAP
// 1.1 faults. Translation never fails: anything it cannot interpret becomes
// a generic Server fault.
package fault
