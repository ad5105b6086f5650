package sbom

// Query templates for the secure-chain ontology. Component names and
// version identifiers are matched as exact literals; the query client
// validates and escapes every value before substitution.

// versionQuery discovers every version of a component by name.
const versionQuery = `
SELECT ?version_id
WHERE {
  ?software <http://schema.org/name> "%(software_name)s" .
  ?software <https://w3id.org/secure-chain/hasSoftwareVersion> ?version .
  ?version <https://w3id.org/secure-chain/versionName> ?version_id .
}
`

// dependencyQuery lists the direct dependencies of one version. The
// bound ?dependency is the component URI of the dependency; its name
// is the trailing URI segment.
const dependencyQuery = `
SELECT ?dependency ?dependencyVersion ?depVersionName
WHERE {
  ?software <http://schema.org/name> "%(software_name)s" .
  ?software <https://w3id.org/secure-chain/hasSoftwareVersion> ?version .
  ?version <https://w3id.org/secure-chain/versionName> "%(version_id)s" .
  ?version <https://w3id.org/secure-chain/dependsOn> ?depVersion .
  ?depVersion <https://w3id.org/secure-chain/versionName> ?depVersionName .
  ?dependency <https://w3id.org/secure-chain/hasSoftwareVersion> ?depVersion .
}
`

// vulnerabilityQuery lists the known vulnerabilities of one version.
// The classification is OPTIONAL: a vulnerability without one leaves
// ?vulnType unbound.
const vulnerabilityQuery = `
SELECT ?vulnerability ?vulnId ?vulnType
WHERE {
  ?software <http://schema.org/name> "%(software_name)s" .
  ?software <https://w3id.org/secure-chain/hasSoftwareVersion> ?version .
  ?version <https://w3id.org/secure-chain/versionName> "%(version_id)s" .
  ?version <https://w3id.org/secure-chain/vulnerableTo> ?vulnerability .
  ?vulnerability <http://schema.org/identifier> ?vulnId .
  OPTIONAL { ?vulnerability <https://w3id.org/secure-chain/vulnerabilityType> ?vulnType . }
}
`
