// ABOUTME: Sample configuration written by the init command.
// ABOUTME: Kept loadable so tests can check it against Load.

package config

// Sample is a starting configuration that publishes the builtin hello
// service and consumes it again through its own descriptor.
const Sample = `# soap-gateway configuration

server:
  http_addr: "localhost:9090"
  # grpc_addr: "localhost:9091"

inbound:
  local_service: "hello"
  wsdl_location: "${SOAP_GATEWAY_WSDL}"
  host: "localhost"
  port: 8080
  context: ""
  wait_timeout: "15s"

# outbound:
#   service_name: "webservice-consumer"
#   remote_wsdl: "http://localhost:8080/HelloWebService?wsdl"
#   request_timeout: "30s"

fabric:
  workers: 8
  queue_size: 64
  # nats:
  #   url: "nats://localhost:4222"
  #   export: ["hello"]

database:
  path: ""
  retention: "168h"

auth:
  jwt_secret: "${SOAP_GATEWAY_JWT_SECRET}"

tailscale:
  enabled: false
  hostname: "soap-gateway"

logging:
  level: "info"
  format: "text"

metrics:
  enabled: true
  path: "/metrics"
`
