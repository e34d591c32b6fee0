// ABOUTME: Package documentation for the built-in fabric services.
// ABOUTME: Describes the echo and hello services registered at startup.

// Package builtins provides services the gateway registers in its in-memory
// fabric without any external provider.
//
// # Services
//
//   - echo: replies to in-out exchanges with the request content and headers
//     unchanged; in-only exchanges are logged and dropped.
//   - hello: the greeting service described by the sample HelloWebService
//     descriptor. sayHello answers "Hello NAME" and faults with
//     Server.AppError when arg0 is empty; helloWS is one-way.
//
// # Registration
//
// Register the defaults on a fabric:
//
//	err := builtins.Register(domain, builtins.Defaults(logger)...)
//
// Register a single service under another name:
//
//	err := builtins.Register(domain, builtins.Service{Name: "publish-as-ws", Handler: builtins.Hello(logger)})
//
// Register stops at the first name that is already taken and returns the
// fabric's error; services registered before it stay registered.
package builtins
