package vuln

import (
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
)

// snmpDefaultCommunities is the probe list for the default-credentials
// check (§4.6): any device that answers an SNMPv2c GET on sysDescr with
// one of these community strings still has factory defaults in place.
var snmpDefaultCommunities = []string{"public", "private"}

const (
	snmpProbeTimeout = 500 * time.Millisecond
	sysDescrOID      = "1.3.6.1.2.1.1.1.0"
)

// probeSNMPDefaults reports the first default community string the
// device answers to, or "" if none responded.
func probeSNMPDefaults(ip string) string {
	for _, community := range snmpDefaultCommunities {
		if snmpAnswers(ip, community) {
			return community
		}
	}
	return ""
}

func snmpAnswers(ip, community string) bool {
	client := &gosnmp.GoSNMP{
		Target:    ip,
		Port:      161,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   snmpProbeTimeout,
		Retries:   0,
	}
	if err := client.Connect(); err != nil {
		return false
	}
	defer client.Conn.Close()

	result, err := client.Get([]string{sysDescrOID})
	if err != nil || len(result.Variables) == 0 {
		return false
	}
	return result.Variables[0].Type != gosnmp.NoSuchObject && result.Variables[0].Type != gosnmp.NoSuchInstance
}

func snmpFindingDescription(ip, community string) string {
	return fmt.Sprintf("Device at %s answers SNMP queries using the default community string %q", ip, community)
}
